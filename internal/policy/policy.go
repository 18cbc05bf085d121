// Package policy implements the pure decision rules for PingPal: reply
// gating, gif rates, proactive-scheduling checks, and quiet-hour arithmetic.
//
// Everything here is side-effect free except AllowGif, which consumes entropy
// through an injected random source so tests stay deterministic.
package policy

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BubblyOak/PingPal/internal/config"
	"github.com/BubblyOak/PingPal/internal/models"
	"github.com/BubblyOak/PingPal/internal/util"
)

// MinScheduleDelay is the minimum distance into the future a proactive
// message may be scheduled.
const MinScheduleDelay = 60 * time.Second

// quietAdvanceBound caps how many times NextAllowedTime will hop between
// overlapping blocks before giving up and returning its best candidate.
const quietAdvanceBound = 5

// gifRateProb maps a configured gif rate to a send probability.
// Unknown rates map to zero.
var gifRateProb = map[config.GifRate]float64{
	config.GifRateOff:    0.0,
	config.GifRateLow:    0.2,
	config.GifRateMedium: 0.5,
	config.GifRateHigh:   0.8,
}

// RandSource supplies uniform draws in [0,1). *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// QuietBlock is a local time-of-day range in minutes past midnight.
// Start > End means the block wraps past midnight.
type QuietBlock struct {
	Start int
	End   int
}

// BuildQuietBlocks parses the configured quiet-hour ranges.
func BuildQuietBlocks(settings *config.Settings) ([]QuietBlock, error) {
	blocks := make([]QuietBlock, 0, len(settings.QuietHours))
	for _, qh := range settings.QuietHours {
		start, err := util.ParseHHMM(qh.Start)
		if err != nil {
			return nil, fmt.Errorf("quiet_hours start: %w", err)
		}
		end, err := util.ParseHHMM(qh.End)
		if err != nil {
			return nil, fmt.Errorf("quiet_hours end: %w", err)
		}
		blocks = append(blocks, QuietBlock{Start: start, End: end})
	}
	return blocks, nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func (b QuietBlock) contains(minute int) bool {
	if b.Start <= b.End {
		return minute >= b.Start && minute < b.End
	}
	return minute >= b.Start || minute < b.End
}

// IsWithinQuietHours reports whether the local time-of-day of t falls inside
// any quiet block. Blocks are inclusive of their start and exclusive of their
// end; a wrapping block matches times at or after its start or before its end.
func IsWithinQuietHours(t time.Time, blocks []QuietBlock) bool {
	minute := minuteOfDay(t)
	for _, b := range blocks {
		if b.contains(minute) {
			return true
		}
	}
	return false
}

func atMinuteOfDay(t time.Time, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), minute/60, minute%60, 0, 0, t.Location())
}

// NextAllowedTime advances t forward to the first instant not inside any
// quiet block. Blocks are not assumed to be sorted or merged: escaping one
// block may land inside another, so each hop re-checks every block. The
// search is bounded; with pathologically overlapping blocks the last
// candidate is returned best-effort.
func NextAllowedTime(t time.Time, blocks []QuietBlock) time.Time {
	candidate := t
	for i := 0; i < quietAdvanceBound; i++ {
		moved := false
		minute := minuteOfDay(candidate)
		for _, b := range blocks {
			if b.Start <= b.End {
				if minute >= b.Start && minute < b.End {
					candidate = atMinuteOfDay(candidate, b.End)
					moved = true
					break
				}
				continue
			}
			if minute >= b.Start {
				candidate = atMinuteOfDay(candidate.AddDate(0, 0, 1), b.End)
				moved = true
				break
			}
			if minute < b.End {
				candidate = atMinuteOfDay(candidate, b.End)
				moved = true
				break
			}
		}
		if !moved {
			break
		}
	}
	return candidate
}

// AllowGif decides whether a gif may accompany a message, sampling the
// configured rate from rng.
func AllowGif(rate config.GifRate, rng RandSource) bool {
	prob := gifRateProb[rate]
	if prob <= 0 {
		return false
	}
	return rng.Float64() < prob
}

// ShouldReplyInGroup reports whether a group message warrants a reply.
func ShouldReplyInGroup(isMention bool, groups config.Groups) bool {
	if !groups.ReplyOnlyWhenMentioned {
		return true
	}
	return isMention
}

// ShouldScheduleProactive reports whether proactive messages are allowed for
// a chat of the given kind.
func ShouldScheduleProactive(settings *config.Settings, kind models.ChatKind) bool {
	if !settings.Proactive.Enabled {
		return false
	}
	if kind == models.ChatKindGroup && !settings.Groups.AllowProactive {
		return false
	}
	return true
}

// CanUsePlan reports whether a candidate item clears the confidence floor.
func CanUsePlan(item models.PlanItem, settings *config.Settings) bool {
	return item.Confidence >= settings.Proactive.MinConfidence
}

// offset-less layouts accepted from the assistant, interpreted as wall-clock
// time in the configured zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseSendAt parses an ISO-8601 send time. A trailing Z or explicit offset
// is honored; an offset-less value is assumed to be local to loc and flagged
// at warn level. Returns false on unparsable input; callers drop the
// candidate silently.
func ParseSendAt(raw string, loc *time.Location) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t.In(loc), true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, loc); err == nil {
			slog.Warn("plan send_at missing timezone, assuming configured zone", "send_at", raw, "timezone", loc.String())
			return t, true
		}
	}
	return time.Time{}, false
}

// SanitizeScheduleTime enforces the minimum scheduling delay relative to
// localNow, then pushes the candidate out of any quiet block. The result is
// idempotent: re-applying it to its own output yields the same instant.
func SanitizeScheduleTime(candidate, localNow time.Time, blocks []QuietBlock) time.Time {
	candidate = util.EnsureMinDelay(candidate, localNow, MinScheduleDelay)
	if IsWithinQuietHours(candidate, blocks) {
		candidate = NextAllowedTime(candidate, blocks)
	}
	return candidate
}
