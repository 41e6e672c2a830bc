package engine

import (
	"context"
	"errors"

	"github.com/mediawatch/backend/internal/media"
	"github.com/mediawatch/backend/internal/notify"
)

// Extraction outcomes reported to the observer.
const (
	extractionOK        = "ok"
	extractionFailed    = "failed"
	extractionDiscarded = "discarded"
)

// requestExtraction starts an asynchronous palette extraction for the art
// member id. The result comes back as artExtracted, through the mailbox
// while running and through Apply otherwise, and is checked against the
// ticket before it can land.
func (e *Engine) requestExtraction(id media.SessionID) {
	entry, ok := e.art.Get(id)
	if !ok {
		return
	}
	if e.extractor == nil {
		e.logger.Debug().Str("session", id.String()).Msg("No extractor, dropping art session")
		if _, wasHead := e.art.Remove(id); wasHead {
			e.selectArtFallback(id)
		}
		return
	}
	ctx := e.runCtx
	if !e.running {
		ctx = context.Background()
	}
	seq, _ := e.art.BeginRequest(id)
	ticket := extractionTicket{
		session:    id,
		generation: e.store.Generation(id),
		request:    seq,
		epoch:      e.epoch,
	}
	e.extractWG.Add(1)
	go e.extract(ctx, ticket, entry.Thumbnail)
}

func (e *Engine) extract(ctx context.Context, t extractionTicket, thumb media.Thumbnail) {
	defer e.extractWG.Done()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer e.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, e.extractTimeout)
	defer cancel()

	palette, err := e.extractor.Extract(ctx, thumb)
	if err != nil {
		var xerr *media.ExtractionError
		if !errors.As(err, &xerr) {
			err = &media.ExtractionError{Op: "palette", Err: err}
		}
	}
	e.reinject(artExtracted{ticket: t, palette: palette, err: err})
}

// reinject hands a completed extraction back to the serialized path. The
// ticket's epoch decides whether it still applies.
func (e *Engine) reinject(ev artExtracted) {
	if mb := e.mbox.Load(); mb != nil {
		mb.push(ev)
		return
	}
	e.applyIn(ev.ticket.epoch, ev)
}

func (e *Engine) onArtExtracted(ev artExtracted) {
	t := ev.ticket
	log := e.logger.With().
		Str("session", t.session.String()).
		Uint64("generation", t.generation).
		Uint64("request", t.request).
		Logger()

	if t.epoch != e.epoch || e.store.Generation(t.session) != t.generation || !e.art.Current(t.session, t.request) {
		e.obs.ExtractionFinished(extractionDiscarded)
		log.Debug().Msg("Discarding stale extraction result")
		return
	}

	if ev.err != nil {
		e.obs.ExtractionFinished(extractionFailed)
		log.Warn().Err(ev.err).Msg("Art extraction failed, dropping art session")
		if _, wasHead := e.art.Remove(t.session); wasHead {
			e.selectArtFallback(t.session)
		}
		return
	}

	e.obs.ExtractionFinished(extractionOK)
	e.art.Land(t.session, t.request, ev.palette)
	if e.art.IsHead(t.session) {
		p := ev.palette
		e.publish(notify.Art(notify.ArtStateChanged{Session: t.session, Palette: &p}))
	}
}
