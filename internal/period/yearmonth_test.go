package period

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUnmarshalJSONForms(t *testing.T) {
	tests := []struct {
		in      string
		want    YearMonth
		wantErr bool
	}{
		{`"2021-03"`, New(2021, time.March), false},
		{`"2021-03-01"`, New(2021, time.March), false},
		{`[2021, 12]`, New(2021, time.December), false},
		{`[2021]`, YearMonth{}, true},
		{`[2021, 13]`, YearMonth{}, true},
		{`"03-2021"`, YearMonth{}, true},
		{`202103`, YearMonth{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got YearMonth
			err := json.Unmarshal([]byte(tt.in), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal(New(2021, time.January))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"2021-01"` {
		t.Errorf("got %s", data)
	}
}

func TestOrdering(t *testing.T) {
	jan := New(2021, time.January)
	dec := New(2021, time.December)
	next := New(2022, time.January)

	if !jan.Before(dec) || !dec.Before(next) || jan.Before(jan) {
		t.Error("Before ordering broken")
	}
	if !next.After(jan) || jan.After(dec) {
		t.Error("After ordering broken")
	}
	if !(YearMonth{}).IsZero() || jan.IsZero() {
		t.Error("IsZero broken")
	}
}
