package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
)

// ConnectionCheck reports healthy while the supervisor holds a live connection.
func ConnectionCheck(s *Supervisor) func(context.Context) (bool, string) {
	return func(context.Context) (bool, string) {
		state := s.State()
		if state != domain.StateConnected {
			return false, string(state)
		}
		return true, fmt.Sprintf("connected, %d reconnects", s.Reconnects())
	}
}

// SampleFreshnessCheck reports healthy while the last sample is younger than maxAge.
func SampleFreshnessCheck(m *Monitor, maxAge time.Duration, now func() time.Time) func(context.Context) (bool, string) {
	return func(context.Context) (bool, string) {
		s := m.LastSample()
		if s == nil {
			return false, "no sample yet"
		}
		age := now().Sub(s.FetchedAt)
		if age > maxAge {
			return false, fmt.Sprintf("last sample %s old", age.Round(time.Second))
		}
		return true, ""
	}
}
