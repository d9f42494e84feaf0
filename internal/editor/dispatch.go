package editor

import (
	"context"
	"fmt"

	"storyreel/internal/interact"
)

// ParseFocus maps the host's focus names onto interact focus values.
func ParseFocus(s string) interact.Focus {
	switch s {
	case "timeline":
		return interact.FocusTimeline
	case "editable":
		return interact.FocusEditable
	}
	return interact.FocusOutside
}

// Dispatch applies one control-channel message. Errors are reported back to
// the host; none of them end the session.
func (s *Session) Dispatch(ctx context.Context, in Inbound) error {
	switch in.Type {
	case "play":
		s.Play()
	case "pause":
		s.Pause()
	case "stop":
		s.Stop()
	case "next":
		s.Next()
	case "seek":
		if in.Seconds == nil {
			return fmt.Errorf("seek: missing seconds")
		}
		s.Seek(*in.Seconds)
	case "seek_begin":
		s.BeginSeek()
		if in.Seconds != nil {
			s.Seek(*in.Seconds)
		}
	case "seek_end":
		s.EndSeek()
	case "manual_play":
		s.ManualPlay(in.Key)

	case "pointer_down":
		s.PointerDown(in.Lane, in.X, in.Y, in.LaneRect, in.Additive)
	case "pointer_move":
		s.PointerMove(in.Lane, in.X, in.Y)
	case "pointer_up":
		return s.PointerUp()
	case "pointer_cancel":
		return s.PointerCancel()
	case "key":
		_, err := s.Key(in.Key, ParseFocus(in.Focus), in.Confirm)
		return err

	case "view":
		f := s.View(in.ScrollPx, in.WidthPx, in.PxPerSecond, in.AnchorPx)
		s.hub.publish(Message{Type: MsgFrame, Frame: &f})
	case "drop":
		src, err := interact.ParseDragSource(in.Source)
		if err != nil {
			return err
		}
		_, err = s.Drop(ctx, src, in.X)
		return err
	case "marker_add":
		if in.Seconds == nil {
			return fmt.Errorf("marker_add: missing seconds")
		}
		return s.AddMarker(*in.Seconds)
	case "marker_remove":
		if in.Seconds == nil {
			return fmt.Errorf("marker_remove: missing seconds")
		}
		_, err := s.RemoveMarker(*in.Seconds)
		return err

	case "surface":
		s.SurfaceEvent(in.Target, in.Event, in.Position)
	default:
		return fmt.Errorf("unknown message type %q", in.Type)
	}
	return nil
}
