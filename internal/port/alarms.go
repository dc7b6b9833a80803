package port

import "strings"

// Alarm is one named port alarm bit.
type Alarm uint

const (
	AlarmNoSync Alarm = 1 << iota
	AlarmNoFollowUps
	AlarmNoDelayResps
	AlarmNoPDelayResps
	AlarmNoTxTimestamps
	AlarmNoRxTimestamps
	AlarmCapsMismatch
	AlarmNoInterface
)

// AlarmSet is a bounded set of raised alarms.
type AlarmSet uint

func (s *AlarmSet) Raise(a Alarm)   { *s |= AlarmSet(a) }
func (s *AlarmSet) Clear(a Alarm)   { *s &^= AlarmSet(a) }
func (s *AlarmSet) ClearAll()       { *s = 0 }
func (s AlarmSet) Has(a Alarm) bool { return s&AlarmSet(a) != 0 }
func (s AlarmSet) Empty() bool      { return s == 0 }

func (s AlarmSet) String() string {
	if s == 0 {
		return "none"
	}
	names := []struct {
		a    Alarm
		name string
	}{
		{AlarmNoSync, "no-sync"},
		{AlarmNoFollowUps, "no-follow-ups"},
		{AlarmNoDelayResps, "no-delay-resps"},
		{AlarmNoPDelayResps, "no-pdelay-resps"},
		{AlarmNoTxTimestamps, "no-tx-timestamps"},
		{AlarmNoRxTimestamps, "no-rx-timestamps"},
		{AlarmCapsMismatch, "caps-mismatch"},
		{AlarmNoInterface, "no-interface"},
	}
	var out []string
	for _, n := range names {
		if s.Has(n.a) {
			out = append(out, n.name)
		}
	}
	return strings.Join(out, ",")
}
