package services

import (
	"context"
	"strings"
	"time"

	"github.com/mindvoyage/apiserver/types"
)

// Local attendance days follow a fixed UTC+9 offset; there is no DST.
var localZone = time.FixedZone("UTC+9", 9*60*60)

const localDateLayout = "2006-01-02"

// LocalDate formats an instant as the YYYY-MM-DD calendar date it falls on
// in the fixed UTC+9 zone. This is the partition key for all per-day
// aggregation.
func LocalDate(t time.Time) string {
	return t.In(localZone).Format(localDateLayout)
}

// AttendanceRepository defines persistence operations for attendance rows.
type AttendanceRepository interface {
	Mark(ctx context.Context, userID int, date, action string, at time.Time) (int, error)
	GetDays(ctx context.Context, userID int) (types.DayMap, error)
	GetDay(ctx context.Context, userID int, date string) (types.DayBlock, bool, error)
}

// AttendanceService encapsulates attendance use-cases.
type AttendanceService struct {
	repo AttendanceRepository
	now  func() time.Time
}

func NewAttendanceService(repo AttendanceRepository) *AttendanceService {
	return &AttendanceService{repo: repo, now: time.Now}
}

// Mark records a login-triggered attendance mark for today and reports
// whether it was the first mark of the day. The caller is responsible for
// ensuring the user exists.
func (s *AttendanceService) Mark(ctx context.Context, userID int) (bool, error) {
	now := s.now()
	count, err := s.repo.Mark(ctx, userID, LocalDate(now), types.ActionLogin, now)
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// AttendedToday reports whether the user already has an attended DayBlock
// for the current local date.
func (s *AttendanceService) AttendedToday(ctx context.Context, userID int) (bool, error) {
	block, ok, err := s.repo.GetDay(ctx, userID, LocalDate(s.now()))
	if err != nil {
		return false, err
	}
	return ok && block.Attended, nil
}

// TodayDetail returns today's local date and its DayBlock. An absent day
// comes back as an all-empty block with Attended=false.
func (s *AttendanceService) TodayDetail(ctx context.Context, userID int) (string, types.DayBlock, error) {
	date := LocalDate(s.now())
	block, ok, err := s.repo.GetDay(ctx, userID, date)
	if err != nil {
		return "", types.DayBlock{}, err
	}
	if !ok {
		return date, types.DayBlock{Actions: []string{}, Counts: map[string]int{}}, nil
	}
	return date, block, nil
}

// ResolveRange turns either a YYYY-MM month shorthand or an explicit
// start/end pair into an inclusive date range. Exactly one form must be
// supplied; month expands to its first and last local day.
func ResolveRange(month, start, end string) (time.Time, time.Time, error) {
	month = strings.TrimSpace(month)
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if month != "" {
		first, err := time.ParseInLocation("2006-01", month, localZone)
		if err != nil {
			return time.Time{}, time.Time{}, validationErr("month must look like YYYY-MM")
		}
		last := first.AddDate(0, 1, -1)
		return first, last, nil
	}

	if start == "" || end == "" {
		return time.Time{}, time.Time{}, validationErr("either month or both start and end are required")
	}

	from, err := time.ParseInLocation(localDateLayout, start, localZone)
	if err != nil {
		return time.Time{}, time.Time{}, validationErr("start must look like YYYY-MM-DD")
	}
	to, err := time.ParseInLocation(localDateLayout, end, localZone)
	if err != nil {
		return time.Time{}, time.Time{}, validationErr("end must look like YYYY-MM-DD")
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, validationErr("start must not be after end")
	}
	return from, to, nil
}

// RangeSummary is the calendar payload for an inclusive date range.
type RangeSummary struct {
	Dates    []string                  `json:"dates"`
	Attended []string                  `json:"attended"`
	Detail   map[string]types.DayBlock `json:"detail"`
}

// Range walks every calendar day in [from, to] and collects the attended
// ones with their detail. Iterating real dates rather than stored keys
// keeps malformed keys out of the result and makes month and year rollover
// a property of the calendar, not of string ordering.
func (s *AttendanceService) Range(ctx context.Context, userID int, from, to time.Time) (RangeSummary, error) {
	days, err := s.repo.GetDays(ctx, userID)
	if err != nil {
		return RangeSummary{}, err
	}

	summary := RangeSummary{
		Dates:    []string{},
		Attended: []string{},
		Detail:   map[string]types.DayBlock{},
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		date := d.Format(localDateLayout)
		summary.Dates = append(summary.Dates, date)
		block, ok := days[date]
		if ok && block.Attended {
			summary.Attended = append(summary.Attended, date)
			summary.Detail[date] = block
		}
	}
	return summary, nil
}
