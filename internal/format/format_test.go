package format

import (
	"errors"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
	"github.com/MikeSquared-Agency/casi/internal/textnorm"
)

var samples = []string{
	"",
	"hello world",
	"Solar power is clean. Wind power is cheap! Is hydro reliable? It depends on rainfall.",
	"The the market closed on Jan 5, 2024 at a record high. Analysts were surprised.",
	"**Question**: Why is the sky blue?\n**Answer**: Rayleigh scattering favours short wavelengths",
	"Energy sources:\n1. **Solar**: converts sunlight into electricity\n2. **Wind**: turbines harvest moving air\n3. **Hydro**: dams use flowing water",
	"| **Item** | **Description** |\n|----------|-----------------|\n| Solar | clean energy from the sun |\n| Wind | energy from moving air |",
	strings.Repeat("word ", 60) + "end",
	"Pi is roughly 3.14 and e is roughly 2.72",
	"emoji 🚀 and control \x07 characters survive?",
	"Jan Jan 5, 2020 5, 2020 happened",
	"Go 1.22 adds range over int. See example.com for details",
}

func TestFormat_Idempotent(t *testing.T) {
	for _, mood := range []Mood{Neutral, Empathetic, Enthusiastic} {
		for _, max := range []int{10, 25, 500} {
			for _, in := range samples {
				once := Format(in, max, mood)
				twice := Format(once, max, mood)
				if once != twice {
					t.Errorf("mood=%s max=%d not idempotent:\n once: %q\ntwice: %q", mood, max, once, twice)
				}
			}
		}
	}
}

func TestFormat_WordBudget(t *testing.T) {
	for _, max := range []int{10, 11, 17, 40} {
		for _, in := range samples {
			out := Format(in, max, Neutral)
			if n := textnorm.WordCount(out); n > max {
				t.Errorf("max=%d got %d words: %q", max, n, out)
			}
		}
	}
}

func TestFormat_NeverEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "@@@ ### $$$", "\x00\x01"} {
		if out := Format(in, 10, Neutral); out == "" {
			t.Errorf("Format(%q) returned empty", in)
		}
	}
	if got := Format("", 10, Neutral); got != Filler {
		t.Errorf("empty input = %q, want filler", got)
	}
}

func TestFormat_Mood(t *testing.T) {
	in := "solar power is clean. is wind cheap? it is"
	tests := []struct {
		mood Mood
		want string
	}{
		{Enthusiastic, "Solar power is clean! is wind cheap! it is!"},
		{Playful, "Solar power is clean! is wind cheap! it is!"},
		{Empathetic, "Solar power is clean. is wind cheap. it is."},
		{Neutral, "Solar power is clean. is wind cheap? it is."},
	}
	for _, tt := range tests {
		t.Run(string(tt.mood), func(t *testing.T) {
			if got := Format(in, 100, tt.mood); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat_DropsOverBudgetSentence(t *testing.T) {
	in := "One two three four five. Six seven eight nine ten eleven twelve."
	if got := Format(in, 10, Neutral); got != "One two three four five." {
		t.Errorf("got %q", got)
	}
}

func TestFormat_HardTruncatesLongFirstSentence(t *testing.T) {
	in := strings.Repeat("alpha ", 30)
	got := Format(in, 10, Enthusiastic)
	if textnorm.WordCount(got) != 10 || !strings.HasSuffix(got, "!") || !strings.HasPrefix(got, "Alpha") {
		t.Errorf("got %q", got)
	}
}

func TestFormat_KeepsInnerDots(t *testing.T) {
	tests := []struct {
		in   string
		mood Mood
		want string
	}{
		{"pi is about 3.14 today", Neutral, "Pi is about 3.14 today."},
		{"pi is about 3.14 today", Empathetic, "Pi is about 3.14 today."},
		{"pi is about 3.14 today", Enthusiastic, "Pi is about 3.14 today!"},
		{"Go 1.22 adds range over int", Neutral, "Go 1.22 adds range over int."},
		{"Go 1.22 adds range over int", Empathetic, "Go 1.22 adds range over int."},
		{"Go 1.22 adds range over int", Enthusiastic, "Go 1.22 adds range over int!"},
		{"See example.com for details", Neutral, "See example.com for details."},
		{"See example.com for details", Empathetic, "See example.com for details."},
		{"See example.com for details", Enthusiastic, "See example.com for details!"},
		{"Go 1.22 shipped. See example.com now", Enthusiastic, "Go 1.22 shipped! See example.com now!"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mood)+"/"+tt.in, func(t *testing.T) {
			if got := Format(tt.in, 50, tt.mood); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat_DateRemovalSettles(t *testing.T) {
	in := "Jan Jan 5, 2020 5, 2020 happened"
	once := Format(in, 50, Neutral)
	if strings.Contains(once, "2020") {
		t.Errorf("date survived: %q", once)
	}
	if twice := Format(once, 50, Neutral); twice != once {
		t.Errorf("second pass changed output: %q -> %q", once, twice)
	}
}

func TestFormat_StripsDatesAndNoise(t *testing.T) {
	got := Format("Prices rose on March 3, 2023 sharply ~~ today <b>", 50, Neutral)
	if strings.Contains(got, "2023") || strings.ContainsAny(got, "~<>") {
		t.Errorf("noise survived: %q", got)
	}
}

func TestFormat_ListKeepsLines(t *testing.T) {
	in := samples[5]
	got := Format(in, 500, Enthusiastic)
	if got != in {
		t.Errorf("list changed under budget:\n%s", got)
	}

	cut := Format(in, 9, Neutral)
	lines := strings.Split(cut, "\n")
	if len(lines) != 2 || !textnorm.IsListLine(lines[1]) {
		t.Errorf("want header plus one list line, got %q", cut)
	}
	if textnorm.WordCount(cut) > 9 {
		t.Errorf("budget exceeded: %q", cut)
	}
}

func TestFormat_TableRowsStayWhole(t *testing.T) {
	got := Format(samples[6], 14, Neutral)
	for _, line := range strings.Split(got, "\n") {
		if !textnorm.IsTableLine(line) {
			t.Errorf("broken table row %q in %q", line, got)
		}
	}
}

func TestParseMood(t *testing.T) {
	tests := []struct {
		in      string
		want    Mood
		wantErr bool
	}{
		{"", Neutral, false},
		{"Neutral", Neutral, false},
		{"empathetic", Empathetic, false},
		{"enthusiastic", Enthusiastic, false},
		{"playful", Enthusiastic, false},
		{"grumpy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMood(tt.in)
			if tt.wantErr {
				if !errors.Is(err, casierr.ErrValidation) {
					t.Fatalf("want validation error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseMood(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}
