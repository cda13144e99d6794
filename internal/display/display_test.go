package display

import "testing"

func TestDefaults(t *testing.T) {
	v := New().View()
	if v.Brightness != DefaultBrightness || v.EventText != "" || v.Progress != 0 {
		t.Fatalf("view=%+v", v)
	}
}

func TestBrightnessFloor(t *testing.T) {
	s := New()
	for _, tc := range []struct{ in, want uint8 }{{0, 10}, {9, 10}, {10, 10}, {255, 255}} {
		if got := s.SetBrightness(tc.in); got != tc.want || s.View().Brightness != tc.want {
			t.Errorf("SetBrightness(%d)=%d view=%d", tc.in, got, s.View().Brightness)
		}
	}
}

func TestProgressClamped(t *testing.T) {
	s := New()
	s.SetProgress(140)
	if s.View().Progress != 100 {
		t.Fatalf("progress=%d", s.View().Progress)
	}
	s.SetProgress(-3)
	if s.View().Progress != 0 {
		t.Fatalf("progress=%d", s.View().Progress)
	}
}

func TestSetters(t *testing.T) {
	s := New()
	s.SetEventText("Breakfast")
	s.SetTimeText("4:59")
	s.SetBackground("/img/b.bin")
	v := s.View()
	if v.EventText != "Breakfast" || v.TimeText != "4:59" || v.Background != "/img/b.bin" {
		t.Fatalf("view=%+v", v)
	}
}
