// Package timedate answers time, date, and timezone queries.
package timedate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"aria/pkg/config"
	"aria/pkg/skill"
)

const (
	timeFormat     = "3:04 PM"
	dateFormat     = "Monday, January 02, 2006"
	longTimeFormat = "Monday, January 02, 2006 at 3:04 PM"
)

// locationZones maps spoken city names to IANA timezone identifiers.
var locationZones = map[string]string{
	"new york":    "America/New_York",
	"london":      "Europe/London",
	"paris":       "Europe/Paris",
	"tokyo":       "Asia/Tokyo",
	"sydney":      "Australia/Sydney",
	"los angeles": "America/Los_Angeles",
	"chicago":     "America/Chicago",
	"beijing":     "Asia/Shanghai",
	"moscow":      "Europe/Moscow",
	"berlin":      "Europe/Berlin",
}

var (
	timeInPattern      = regexp.MustCompile(`(?i)time in (?P<location>[\w\s]+)`)
	setTimezonePattern = regexp.MustCompile(`(?i)(?:set|change) timezone(?: to (?P<timezone>[\w/_]+))?`)
)

// TimeDate is the builtin clock skill. The configured timezone can be
// changed at runtime through the set_timezone handler.
type TimeDate struct {
	*skill.Base

	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	location *time.Location
	zoneName string
}

// New builds the skill from its config section. An unknown configured
// timezone is logged and replaced with UTC.
func New(cfg config.SkillConfig, log *slog.Logger) (skill.Skill, error) {
	s := &TimeDate{
		log:      log.With("component", "skill.time_date"),
		now:      time.Now,
		location: time.UTC,
	}

	if zone := cfg.StringOption("timezone", ""); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			s.log.Warn("Unknown timezone, using UTC", "timezone", zone)
		} else {
			s.location = loc
			s.zoneName = zone
		}
	}

	handlers := []skill.Handler{
		{
			Name:     "current_time",
			Match:    skill.MatchLiteral("what time is it"),
			Priority: skill.PriorityHigh,
			Func:     s.handleTime,
		},
		{
			Name:     "current_time_alt",
			Match:    skill.MatchLiteral("current time"),
			Priority: skill.PriorityHigh,
			Func:     s.handleTime,
		},
		{
			Name:     "current_date",
			Match:    skill.MatchLiteral("today's date"),
			Priority: skill.PriorityHigh,
			Func:     s.handleDate,
		},
		{
			Name:     "current_date_alt",
			Match:    skill.MatchLiteral("current date"),
			Priority: skill.PriorityHigh,
			Func:     s.handleDate,
		},
		{
			Name:     "day_of_week",
			Match:    skill.MatchLiteral("what day is"),
			Priority: skill.PriorityHigh,
			Func:     s.handleDay,
		},
		{
			Name:     "time_in_location",
			Match:    skill.MatchRegex(timeInPattern),
			Priority: skill.PriorityNormal,
			Func:     s.handleTimeInLocation,
		},
		{
			Name:     "set_timezone",
			Match:    skill.MatchRegex(setTimezonePattern),
			Priority: skill.PriorityNormal,
			Func:     s.handleSetTimezone,
		},
		{
			Name:     "timezone_query",
			Match:    skill.MatchLiteral("my timezone"),
			Priority: skill.PriorityHigh,
			Func:     s.handleTimezoneQuery,
		},
		{
			Name:     "timezone_query_alt",
			Match:    skill.MatchLiteral("current timezone"),
			Priority: skill.PriorityHigh,
			Func:     s.handleTimezoneQuery,
		},
	}

	s.Base = skill.NewBase(
		"time_date",
		"Provides information about the current time, date, and timezone.",
		"1.0.0",
		cfg,
		handlers,
		log,
	)

	return s, nil
}

func (s *TimeDate) currentTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.now().In(s.location)
}

func (s *TimeDate) handleTime(context.Context, skill.Intent) (string, error) {
	return fmt.Sprintf("The current time is %s.", s.currentTime().Format(timeFormat)), nil
}

func (s *TimeDate) handleDate(context.Context, skill.Intent) (string, error) {
	return fmt.Sprintf("Today is %s.", s.currentTime().Format(dateFormat)), nil
}

func (s *TimeDate) handleDay(context.Context, skill.Intent) (string, error) {
	return fmt.Sprintf("Today is %s.", s.currentTime().Format("Monday")), nil
}

func (s *TimeDate) handleTimeInLocation(_ context.Context, intent skill.Intent) (string, error) {
	location := strings.ToLower(strings.TrimSpace(intent.Entities["location"]))
	if location == "" {
		return "I'm not sure which location you're asking about.", nil
	}

	zone, ok := locationZones[location]
	if !ok {
		return fmt.Sprintf("I don't know the timezone for %s.", location), nil
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		s.log.Error("Failed to load timezone", "timezone", zone, "error", err)
		return fmt.Sprintf("I couldn't get the time for %s.", location), nil
	}

	s.mu.Lock()
	now := s.now().In(loc)
	s.mu.Unlock()

	return fmt.Sprintf("The current time in %s is %s.", titleCase(location), now.Format(longTimeFormat)), nil
}

func (s *TimeDate) handleSetTimezone(_ context.Context, intent skill.Intent) (string, error) {
	zone := strings.TrimSpace(intent.Entities["timezone"])
	if zone == "" {
		return "Please specify a timezone, for example: 'Set timezone to America/New_York'", nil
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return fmt.Sprintf("I don't recognize the timezone '%s'. Please use a valid timezone like 'America/New_York'.", zone), nil
	}

	s.mu.Lock()
	s.location = loc
	s.zoneName = zone
	s.mu.Unlock()

	return fmt.Sprintf("Timezone set to %s.", zone), nil
}

func (s *TimeDate) handleTimezoneQuery(context.Context, skill.Intent) (string, error) {
	s.mu.Lock()
	zone := s.zoneName
	s.mu.Unlock()

	if zone == "" {
		zone = "system default"
	}

	return fmt.Sprintf("Your current timezone is set to %s.", zone), nil
}

// titleCase capitalizes the first letter of each word in a location name.
func titleCase(text string) string {
	words := strings.Fields(text)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}

	return strings.Join(words, " ")
}
