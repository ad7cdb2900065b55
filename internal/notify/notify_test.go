package notify

import (
	"fmt"
	"log/slog"
	"testing"
)

func TestCenter_RecentNewestFirst(t *testing.T) {
	c := NewCenter(slog.Default())

	c.Success("first")
	c.Failure("second")

	recent := c.Recent()
	if len(recent) != 2 {
		t.Fatalf("len(Recent()) = %d, want 2", len(recent))
	}
	if recent[0].Message != "second" || recent[0].Level != LevelFailure {
		t.Errorf("Recent()[0] = %+v, want newest failure", recent[0])
	}
	if recent[1].Message != "first" || recent[1].Level != LevelSuccess {
		t.Errorf("Recent()[1] = %+v, want oldest success", recent[1])
	}
}

func TestCenter_BoundedHistory(t *testing.T) {
	c := NewCenter(slog.Default())

	for i := 0; i < defaultCapacity+10; i++ {
		c.Success(fmt.Sprintf("notice %d", i))
	}

	if got := len(c.Recent()); got != defaultCapacity {
		t.Errorf("len(Recent()) = %d, want %d", got, defaultCapacity)
	}
}
