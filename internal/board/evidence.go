package board

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
	"github.com/controldesk/controldesk/internal/scan"
)

// EvidenceUpload is a file a user attaches to a control.
type EvidenceUpload struct {
	Filename    string
	FileType    string
	Description string
	UploadedBy  string
	Content     []byte
}

// AddEvidence uploads a supporting file for a control. Text files pass
// through the content scanner first; a block verdict is KindRejected.
// New evidence always starts pending review.
func (s *State) AddEvidence(ctx context.Context, id string, up EvidenceUpload) Result {
	ctx, span := s.tracer.Start(ctx, "board.AddEvidence",
		trace.WithAttributes(attribute.String("control.id", id), attribute.Int("evidence.size", len(up.Content))))
	defer span.End()

	c, found := s.Control(id)
	if !found {
		return fail(KindNotFound, nil, "Control %s not found", id)
	}
	name := control.CleanFilename(up.Filename)
	switch {
	case name == "":
		return fail(KindInvalid, nil, "A file name is required")
	case len(up.Content) == 0:
		return fail(KindInvalid, nil, "%s is empty", name)
	case len(up.Content) > control.MaxEvidenceBytes:
		return fail(KindInvalid, nil, "%s is larger than %d MB", name, control.MaxEvidenceBytes>>20)
	}

	if s.scanner != nil && utf8.Valid(up.Content) {
		outcome, err := s.scanner.Scan(ctx, string(up.Content))
		if err != nil {
			s.logger.Warn("evidence scan failed", "control_id", id, "filename", name, "error", err)
		} else if outcome.Blocked() {
			msg := fmt.Sprintf("%s rejected by content scan: %s", name, strings.Join(outcome.RuleIDs(), ", "))
			s.logger.Warn("evidence rejected", "control_id", id, "filename", name, "rules", outcome.RuleIDs())
			span.SetStatus(codes.Error, "rejected")
			s.emit(Event{Type: EventEvidenceRejected, ControlID: id, Message: msg})
			return Result{Kind: KindRejected, Message: msg, Control: &c}
		} else if outcome.Verdict == scan.VerdictFlag {
			s.logger.Info("evidence flagged", "control_id", id, "filename", name, "rules", outcome.RuleIDs())
		}
	}

	ev, err := s.svc.UploadEvidence(ctx, remote.UploadEvidenceRequest{
		ControlID:   id,
		Filename:    name,
		FileType:    strings.TrimSpace(up.FileType),
		Description: strings.TrimSpace(up.Description),
		UploadedBy:  strings.TrimSpace(up.UploadedBy),
		Content:     up.Content,
	})
	if err != nil {
		s.logger.Error("upload evidence", "control_id", id, "filename", name, "error", err)
		recordErr(span, err)
		return fail(evidenceKind(err), err, "Could not upload %s: %s", name, describe(err))
	}

	msg := fmt.Sprintf("%s attached to %s", ev.Filename, id)
	s.logger.Info("evidence added", "control_id", id, "evidence_id", ev.ID, "size", ev.Size)
	s.emit(Event{Type: EventEvidenceAdded, ControlID: id, Message: msg, OK: true})
	res := ok(msg, &c)
	res.Evidence = ev
	return res
}

// Evidence lists the files attached to a control in upload order.
func (s *State) Evidence(ctx context.Context, id string) ([]control.Evidence, Result) {
	ctx, span := s.tracer.Start(ctx, "board.Evidence",
		trace.WithAttributes(attribute.String("control.id", id)))
	defer span.End()

	c, found := s.Control(id)
	if !found {
		return nil, fail(KindNotFound, nil, "Control %s not found", id)
	}
	list, err := s.svc.ListEvidence(ctx, id)
	if err != nil {
		s.logger.Error("list evidence", "control_id", id, "error", err)
		recordErr(span, err)
		return nil, fail(evidenceKind(err), err, "Could not load evidence: %s", describe(err))
	}
	return list, ok(fmt.Sprintf("%d evidence files", len(list)), &c)
}

// ReviewEvidence sets the review status of one evidence record.
func (s *State) ReviewEvidence(ctx context.Context, id, evidenceID, status string) Result {
	ctx, span := s.tracer.Start(ctx, "board.ReviewEvidence",
		trace.WithAttributes(attribute.String("control.id", id), attribute.String("evidence.id", evidenceID)))
	defer span.End()

	c, found := s.Control(id)
	if !found {
		return fail(KindNotFound, nil, "Control %s not found", id)
	}
	evidenceID = strings.TrimSpace(evidenceID)
	if evidenceID == "" {
		return fail(KindInvalid, nil, "An evidence id is required")
	}
	st, err := control.ParseEvidenceStatus(status)
	if err != nil {
		return fail(KindInvalid, err, "Unknown evidence status %q", status)
	}

	ev, err := s.svc.ReviewEvidence(ctx, remote.ReviewEvidenceRequest{ControlID: id, EvidenceID: evidenceID, Status: st})
	if err != nil {
		s.logger.Error("review evidence", "control_id", id, "evidence_id", evidenceID, "error", err)
		recordErr(span, err)
		if evidenceKind(err) == KindNotFound {
			return fail(KindNotFound, err, "Evidence %s not found for %s", evidenceID, id)
		}
		return fail(KindNetworkFailure, err, "Could not review %s: %s", evidenceID, describe(err))
	}

	msg := fmt.Sprintf("%s marked %s", ev.Filename, ev.Status.Label())
	s.logger.Info("evidence reviewed", "control_id", id, "evidence_id", ev.ID, "status", ev.Status)
	s.emit(Event{Type: EventEvidenceReviewed, ControlID: id, Message: msg, OK: true})
	res := ok(msg, &c)
	res.Evidence = ev
	return res
}

// EvidenceStats returns review counts across every control.
func (s *State) EvidenceStats(ctx context.Context) (control.EvidenceStats, Result) {
	ctx, span := s.tracer.Start(ctx, "board.EvidenceStats")
	defer span.End()

	st, err := s.svc.EvidenceStats(ctx)
	if err != nil {
		s.logger.Error("evidence stats", "error", err)
		recordErr(span, err)
		return control.EvidenceStats{}, fail(KindNetworkFailure, err, "Could not load evidence stats: %s", describe(err))
	}
	return *st, ok(fmt.Sprintf("%.1f%% of evidence approved", st.ApprovalRate), nil)
}

func evidenceKind(err error) Kind {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return KindNotFound
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
			return KindInvalid
		}
	}
	return KindNetworkFailure
}
