package storage

import "testing"

func TestUploadKey(t *testing.T) {
	cases := map[string]string{
		"../../etc/report.pdf": "uploads/u1/f1/report.pdf",
		"notes.txt":            "uploads/u1/f1/notes.txt",
		"..":                   "uploads/u1/f1/upload",
		"/":                    "uploads/u1/f1/upload",
		"":                     "uploads/u1/f1/upload",
		"a/..":                 "uploads/u1/f1/upload",
	}
	for name, want := range cases {
		if got := UploadKey("u1", "f1", name); got != want {
			t.Errorf("UploadKey(%q) = %q, want %q", name, got, want)
		}
	}
}
