package analysis

import "inkcheck/api/internal/correction"

// SessionSink applies the batches of one run to a correction session.
type SessionSink struct {
	Session *correction.Session
	Token   correction.RunToken
	// OnProgress and OnItems are optional.
	OnProgress func(current, total int)
	OnItems    func(items []correction.Item)
}

func (s *SessionSink) Progress(current, total int) {
	if s.OnProgress != nil {
		s.OnProgress(current, total)
	}
}

func (s *SessionSink) Batch(drafts []correction.Draft) error {
	items, err := s.Session.ApplyBatch(s.Token, drafts)
	if err != nil {
		return err
	}
	if s.OnItems != nil {
		s.OnItems(items)
	}
	return nil
}
