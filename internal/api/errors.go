package api

import (
	"errors"
	"fmt"

	"github.com/kuitang/notelytic/internal/assist"
	"github.com/kuitang/notelytic/internal/backup"
	"github.com/kuitang/notelytic/internal/editor"
	"github.com/kuitang/notelytic/internal/errs"
	"github.com/kuitang/notelytic/internal/locale"
	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/prefs"
)

// classifyError maps package sentinels to coded errors with messages in
// lang. Coded errors pass through unchanged; anything unknown is internal.
func classifyError(err error, lang string, editMaxChars int) error {
	var coded *errs.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, notes.ErrNotFound):
		return errs.Wrap(errs.NotFound, locale.Sprintf(lang, locale.MsgNoteNotFound), err)
	case errors.Is(err, editor.ErrSessionNotFound),
		errors.Is(err, backup.ErrObjectNotFound):
		return errs.Wrap(errs.NotFound, err.Error(), err)
	case errors.Is(err, notes.ErrEmptyNote):
		return errs.Wrap(errs.InvalidArgument, locale.Sprintf(lang, locale.MsgEmptyNote), err)
	case errors.Is(err, editor.ErrEditRejected),
		errors.Is(err, notes.ErrContentTooLong):
		return errs.Wrap(errs.Rejected, locale.Sprintf(lang, locale.MsgEditRejected, editMaxChars), err)
	case errors.Is(err, notes.ErrInvalidID),
		errors.Is(err, notes.ErrPriorHashRequired),
		errors.Is(err, editor.ErrUnknownField),
		errors.Is(err, prefs.ErrUnsupportedLanguage),
		errors.Is(err, prefs.ErrInvalidUserID),
		errors.Is(err, assist.ErrEmptyPrompt):
		return errs.Wrap(errs.InvalidArgument, err.Error(), err)
	case errors.Is(err, assist.ErrGenerationInFlight),
		errors.Is(err, editor.ErrNotEditing),
		errors.Is(err, editor.ErrSessionClosed),
		errors.Is(err, notes.ErrRevisionConflict):
		return errs.Wrap(errs.FailedPrecondition, err.Error(), err)
	default:
		return errs.Wrap(errs.Internal, "internal error", fmt.Errorf("unclassified: %w", err))
	}
}

// generationMessage returns the localized user-facing text for a finished
// generation, or "" while idle, pending or after success.
func generationMessage(st assist.Status, lang string) string {
	switch st.State {
	case assist.StateFailed:
		if errors.Is(st.Err, assist.ErrTimeout) {
			return locale.Sprintf(lang, locale.MsgGenerationTimeout)
		}
		return locale.Sprintf(lang, locale.MsgGenerationFailed)
	case assist.StateCancelled:
		return locale.Sprintf(lang, locale.MsgGenerationCancelled)
	default:
		return ""
	}
}
