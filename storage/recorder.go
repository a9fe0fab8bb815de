package storage

import (
	"context"
	"encoding/json"

	"github.com/zhfg/refly-sub011/internal/logging"
	"github.com/zhfg/refly-sub011/model"
)

// Recorder persists turn streams while forwarding them to a consumer.
type Recorder struct {
	store  *Store
	logger logging.Logger
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store *Store, logger logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{store: store, logger: logger}
}

// Record stores every event of in and forwards it on the returned channel,
// which is closed after in closes. Writes ignore cancellation of ctx so a
// turn abandoned by its client is still recorded completely. Storage
// failures are logged and never interrupt the stream.
func (r *Recorder) Record(ctx context.Context, turnID, query string, in <-chan model.SkillEvent) <-chan model.SkillEvent {
	out := make(chan model.SkillEvent, cap(in))
	ctx = context.WithoutCancel(ctx)
	log := r.logger.WithField("turn_id", turnID)

	created := true
	if err := r.store.CreateTurn(ctx, turnID, query); err != nil {
		log.WithError(err).Error("failed to record turn")
		created = false
	}

	go func() {
		defer close(out)

		var (
			seq      int
			rootSpan string
			skill    string
			finished bool
		)
		for ev := range in {
			if created {
				if seq == 0 {
					rootSpan = ev.SpanID
				}
				if err := r.store.AppendEvent(ctx, seq, ev); err != nil {
					log.WithError(err).WithField("seq", seq).Error("failed to record event")
				}
				seq++

				switch {
				case ev.Event == model.EventStart && ev.SkillMeta.Kind == model.SpanSkill && skill == "":
					skill = ev.SkillMeta.Name
				case ev.Event == model.EventStructuredData && ev.StructuredDataKey == model.KeyTokenUsage:
					r.saveUsage(ctx, log, turnID, ev.Content)
				case ev.Event == model.EventEnd && ev.SpanID == rootSpan:
					if err := r.store.FinishTurn(ctx, turnID, skill, ev.Status, ev.Error); err != nil {
						log.WithError(err).Error("failed to finish turn")
					}
					finished = true
				}
			}
			out <- ev
		}

		if created && !finished {
			if err := r.store.FinishTurn(ctx, turnID, skill, model.StatusFailed, "stream ended without end event"); err != nil {
				log.WithError(err).Error("failed to finish turn")
			}
		}
	}()
	return out
}

func (r *Recorder) saveUsage(ctx context.Context, log logging.Entry, turnID, content string) {
	var usage []model.TokenUsageItem
	if err := json.Unmarshal([]byte(content), &usage); err != nil {
		log.WithError(err).Error("failed to decode token usage")
		return
	}
	if err := r.store.SaveUsage(ctx, turnID, usage); err != nil {
		log.WithError(err).Error("failed to record token usage")
	}
}
