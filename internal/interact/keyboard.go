package interact

import (
	"fmt"

	"storyreel/internal/timeline"
)

// Focus describes where keyboard focus sits when a key arrives.
type Focus int

const (
	FocusOutside Focus = iota
	FocusTimeline
	FocusEditable
)

// HandleKey processes a key press and reports whether it was consumed.
// Delete and Backspace remove the selection after confirmation; Escape
// cancels the open gesture and clears the selection.
func (e *Engine) HandleKey(key string, focus Focus) (bool, error) {
	if focus != FocusTimeline {
		return false, nil
	}
	switch key {
	case "Delete", "Backspace":
		if e.selection.Len() == 0 {
			return false, nil
		}
		err := e.DeleteSelection(e.confirm)
		return true, err
	case "Escape":
		e.ResetScope()
		return true, nil
	}
	return false, nil
}

// DeleteSelection removes every selected clip once confirm agrees. Declining,
// or having no confirmer, leaves the model untouched.
func (e *Engine) DeleteSelection(confirm Confirmer) error {
	refs := e.selection.Refs()
	if len(refs) == 0 {
		return ErrNoSelection
	}
	prompt := "Delete selected clip?"
	if len(refs) > 1 {
		prompt = fmt.Sprintf("Delete %d selected clips?", len(refs))
	}
	if confirm == nil || !confirm.Confirm(prompt) {
		return ErrDeleteDeclined
	}

	e.CancelActive()
	removed := 0
	for _, ref := range refs {
		if err := e.model.RemoveClip(ref.Type, ref.ID); err == nil {
			removed++
		}
	}
	e.selection.Clear()
	e.logger.Info().Int("removed", removed).Msg("clips deleted")
	return nil
}

// Remove deletes a single clip, for drag-to-delete targets that have
// already confirmed with the user.
func (e *Engine) Remove(ref timeline.Ref) error {
	if err := e.model.RemoveClip(ref.Type, ref.ID); err != nil {
		return err
	}
	e.selection.Remove(ref)
	return nil
}
