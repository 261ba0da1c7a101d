package resilience

import (
	"errors"
	"testing"
)

func TestSelect_FirstSuccessWins(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup[int]()
	fg.Add("one", 1)
	fg.Add("two", 2)
	fg.Add("three", 3)

	var tried []int
	choice, err := Select(fg, func(v int) (string, error) {
		tried = append(tried, v)
		if v < 2 {
			return "", errBoom
		}
		return "probe-ok", nil
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if choice.Name != "two" || choice.Value != 2 || choice.Result != "probe-ok" {
		t.Errorf("choice = %+v, want two/2/probe-ok", choice)
	}
	if len(tried) != 2 {
		t.Errorf("tried = %v, want [1 2]", tried)
	}
}

func TestSelect_AllFail(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup[string]()
	fg.Add("a", "a")
	fg.Add("b", "b")

	errA := errors.New("a down")
	_, err := Select(fg, func(v string) (struct{}, error) {
		if v == "a" {
			return struct{}{}, errA
		}
		return struct{}{}, errBoom
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want both candidate errors", err)
	}
}

func TestSelect_Empty(t *testing.T) {
	t.Parallel()
	_, err := Select(NewFallbackGroup[int](), func(int) (int, error) { return 0, nil })
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}
