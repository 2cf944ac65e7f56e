package agent

import (
	"context"
	"time"

	"github.com/break1145/GraphDo/pkg/ai/extract"
	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/logx"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/goccy/go-json"
)

var profileSchema = extract.SchemaFor("Profile", "This is the profile of the user you are chatting with", &memory.Profile{})

// ProfileReconciler rewrites the singleton profile
type ProfileReconciler struct {
	store     memory.Store
	extractor Extractor
	now       func() time.Time
}

func NewProfileReconciler(store memory.Store, extractor Extractor) *ProfileReconciler {
	return &ProfileReconciler{store: store, extractor: extractor, now: time.Now}
}

func (r *ProfileReconciler) Category() memory.Category { return memory.CategoryProfile }

func (r *ProfileReconciler) Reconcile(ctx context.Context, in Input) (Outcome, error) {
	out := Outcome{Category: memory.CategoryProfile}
	ns := memory.NewNamespace(memory.CategoryProfile, in.UserID)

	items, err := r.store.Search(ctx, ns)
	if err != nil {
		return out, err
	}

	req := extract.Request{
		Schema:      profileSchema,
		Instruction: buildExtractPrompt(r.now(), in.Hints),
		Messages:    in.Transcript,
		User:        in.UserID.String(),
	}
	key := ""
	if len(items) > 0 {
		key = items[0].Key
		req.Existing = []extract.Existing{{Key: key, Value: items[0].Value}}
	}

	res, err := r.extractor.Extract(ctx, req)
	if err != nil {
		return out, err
	}
	for _, rj := range res.Rejected {
		out.Rejected = append(out.Rejected, rj.Reason)
	}

	// The profile is a singleton: the first decodable document wins
	var value []byte
	for _, resp := range res.Responses {
		var p memory.Profile
		if err := json.Unmarshal(resp.Value, &p); err != nil {
			out.Rejected = append(out.Rejected, reasonOf(errx.Wrap(err, "profile document does not match schema", errx.TypeValidation)))
			continue
		}
		p.Normalize()
		if value, err = memory.Encode(p); err != nil {
			return out, err
		}
		break
	}

	if value == nil {
		if len(out.Rejected) > 0 {
			return out, ErrRecordsRejected().
				WithDetail("category", memory.CategoryProfile.String()).
				WithDetail("reasons", out.Rejected)
		}
		return out, nil
	}

	inserted := key == ""
	if inserted {
		key = kernel.NewRecordKey().String()
	}
	if err := r.store.Put(ctx, ns, key, value); err != nil {
		return out, err
	}
	if inserted {
		out.Inserted = append(out.Inserted, key)
	} else {
		out.Updated = append(out.Updated, key)
	}

	logx.WithFields(logx.Fields{
		"user_id":  in.UserID.String(),
		"key":      key,
		"inserted": inserted,
	}).Info("profile reconciled")

	return out, nil
}
