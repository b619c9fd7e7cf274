package ftp

import "testing"

func TestPathName(t *testing.T) {
	tests := []struct {
		cwd      string
		param    string
		fullName bool
		want     string
	}{
		// relative parameters append to cwd
		{"/", "file.txt", true, "/file.txt"},
		{"/dir", "file.txt", true, "/dir/file.txt"},
		{"/dir/", "file.txt", true, "/dir/file.txt"},
		{"/dir", "sub/file.txt", true, "/dir/sub/file.txt"},
		// absolute parameters replace cwd
		{"/dir", "/other/file.txt", true, "/other/file.txt"},
		// fullName=false truncates to the containing directory
		{"/dir", "file.txt", false, "/dir"},
		{"/dir/sub", "file.txt", false, "/dir/sub"},
		{"/", "file.txt", false, "/"},
		{"/dir", "/other/file.txt", false, "/other"},
		// CDUP uses an empty parameter to go up one level
		{"/dir/sub", "", false, "/dir"},
		{"/dir", "", false, "/"},
		{"/", "", false, "/"},
		// normalization
		{"/", "", true, "/"},
		{"/dir", "sub/", true, "/dir/sub"},
		{"/", "/", true, "/"},
	}
	for _, tt := range tests {
		if got := pathName(tt.cwd, tt.param, tt.fullName); got != tt.want {
			t.Errorf("pathName(%q, %q, %v) = %q, want %q", tt.cwd, tt.param, tt.fullName, got, tt.want)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		cwd          string
		param        string
		fullFilePath bool
		want         string
	}{
		{"/", "file.txt", true, "/file.txt"},
		{"/dir", "file.txt", true, "/dir/file.txt"},
		{"/dir", "file.txt", false, "file.txt"},
		{"/dir", "/other/file.txt", false, "file.txt"},
		{"/", "sub/file.txt", false, "file.txt"},
	}
	for _, tt := range tests {
		if got := fileName(tt.cwd, tt.param, tt.fullFilePath); got != tt.want {
			t.Errorf("fileName(%q, %q, %v) = %q, want %q", tt.cwd, tt.param, tt.fullFilePath, got, tt.want)
		}
	}
}
