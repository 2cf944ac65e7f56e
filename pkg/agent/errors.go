package agent

import (
	"net/http"

	"github.com/break1145/GraphDo/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("AGENT")

var (
	CodeClassificationFailed = ErrRegistry.Register("CLASSIFICATION_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to classify the message")
	CodeRoutingFailed        = ErrRegistry.Register("ROUTING_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Unknown memory update decision")
	CodeReconcileLimit       = ErrRegistry.Register("RECONCILE_LIMIT", errx.TypeBusiness, http.StatusUnprocessableEntity, "Too many memory updates in one turn")
	CodeInvalidInput         = ErrRegistry.Register("INVALID_INPUT", errx.TypeValidation, http.StatusBadRequest, "user_id and input are required")
	CodeRecordsRejected      = ErrRegistry.Register("RECORDS_REJECTED", errx.TypeValidation, http.StatusUnprocessableEntity, "Every extracted record was rejected")
	CodeEmptyInstruction     = ErrRegistry.Register("EMPTY_INSTRUCTION", errx.TypeExternal, http.StatusBadGateway, "Model returned no instruction text")
	CodeGenerationFailed     = ErrRegistry.Register("GENERATION_FAILED", errx.TypeExternal, http.StatusBadGateway, "Model call failed")
	CodeLedgerFailed         = ErrRegistry.Register("LEDGER_FAILED", errx.TypeUnavailable, http.StatusServiceUnavailable, "Conversation history unavailable")
)

func ErrClassificationFailed() *errx.Error {
	return ErrRegistry.New(CodeClassificationFailed)
}

func ErrRoutingFailed() *errx.Error {
	return ErrRegistry.New(CodeRoutingFailed)
}

func ErrReconcileLimit() *errx.Error {
	return ErrRegistry.New(CodeReconcileLimit)
}

func ErrInvalidInput() *errx.Error {
	return ErrRegistry.New(CodeInvalidInput)
}

func ErrRecordsRejected() *errx.Error {
	return ErrRegistry.New(CodeRecordsRejected)
}

func ErrEmptyInstruction() *errx.Error {
	return ErrRegistry.New(CodeEmptyInstruction)
}

func ErrLedgerFailed() *errx.Error {
	return ErrRegistry.New(CodeLedgerFailed)
}

func ErrGenerationFailed() *errx.Error {
	return ErrRegistry.New(CodeGenerationFailed)
}
