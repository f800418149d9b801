package keyhash

import "testing"

func TestFold(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "abc"},
		{"ABC", "abc"},
		{"MiXeD-42", "mixed-42"},
		{"10.0.0.1", "10.0.0.1"},
	}
	for _, c := range cases {
		if got := Fold([]byte(c.in)); got != c.want {
			t.Errorf("Fold(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSumCaseInsensitive(t *testing.T) {
	if Sum([]byte("Counter")) != Sum([]byte("counter")) {
		t.Fatal("Sum must ignore ASCII case")
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Fatal("distinct keys should not trivially collide")
	}
}
