package game

import "sort"

// ScoreRecord is one row of the local kill/death ledger.
type ScoreRecord struct {
	ID     string `json:"id" msgpack:"id"`
	Name   string `json:"name" msgpack:"name"`
	Kills  int    `json:"kills" msgpack:"kills"`
	Deaths int    `json:"deaths" msgpack:"deaths"`
}

// Scoreboard is kept per client and never synchronized, so two observers
// may disagree on counts.
type Scoreboard struct {
	records map[string]*ScoreRecord
}

func NewScoreboard(records []ScoreRecord) *Scoreboard {
	s := &Scoreboard{records: make(map[string]*ScoreRecord, len(records))}
	for _, r := range records {
		r := r
		s.records[r.ID] = &r
	}
	return s
}

// Ensure creates the row for id if needed and refreshes its name.
func (s *Scoreboard) Ensure(id, name string) {
	if id == "" {
		return
	}
	r, ok := s.records[id]
	if !ok {
		r = &ScoreRecord{ID: id}
		s.records[id] = r
	}
	if name != "" {
		r.Name = name
	}
}

// RecordDeath counts a death for victimID and, when known and distinct,
// a kill for killerID.
func (s *Scoreboard) RecordDeath(victimID, killerID string) {
	s.Ensure(victimID, "")
	s.records[victimID].Deaths++
	if killerID == "" || killerID == victimID {
		return
	}
	s.Ensure(killerID, "")
	s.records[killerID].Kills++
}

func (s *Scoreboard) Get(id string) (ScoreRecord, bool) {
	r, ok := s.records[id]
	if !ok {
		return ScoreRecord{}, false
	}
	return *r, true
}

// Records returns the ledger ordered by kills desc, then deaths asc, then id.
func (s *Scoreboard) Records() []ScoreRecord {
	out := make([]ScoreRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kills != out[j].Kills {
			return out[i].Kills > out[j].Kills
		}
		if out[i].Deaths != out[j].Deaths {
			return out[i].Deaths < out[j].Deaths
		}
		return out[i].ID < out[j].ID
	})
	return out
}
