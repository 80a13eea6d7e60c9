// Package period holds the year-month value used for income periods and
// request ranges.
package period

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// YearMonth is a calendar month. The zero value is not a valid month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func New(year int, month time.Month) YearMonth {
	return YearMonth{Year: year, Month: month}
}

// Parse accepts "2006-01", and "2006-01-02" where the day is ignored.
func Parse(s string) (YearMonth, error) {
	layout := "2006-01"
	if len(s) == len("2006-01-02") {
		layout = "2006-01-02"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("parsing year-month %q: %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) After(other YearMonth) bool {
	return other.Before(ym)
}

func (ym YearMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(ym.String())
}

// UnmarshalJSON accepts the string form and the [year, month] array some
// producers write.
func (ym *YearMonth) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var parts []int
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("decoding year-month array: %w", err)
		}
		if len(parts) < 2 || parts[1] < 1 || parts[1] > 12 {
			return fmt.Errorf("invalid year-month array %s", data)
		}
		*ym = YearMonth{Year: parts[0], Month: time.Month(parts[1])}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding year-month: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
