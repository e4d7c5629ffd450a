package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/voxworks/kokoro-mcp/internal/fsutil"
)

// TestEnsureDir verifies that a directory is created if it doesn't exist.
func TestEnsureDir(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	testPath := filepath.Join(tempDir, "new", "dir")

	err := fsutil.EnsureDir(testPath)
	if err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}

	_, err = os.Stat(testPath)
	if os.IsNotExist(err) {
		t.Errorf("Directory %q was not created", testPath)
	}

	err = fsutil.EnsureDir(testPath)
	if err != nil {
		t.Errorf("EnsureDir failed on existing directory: %v", err)
	}
}

// TestSanitizeFilename verifies that invalid characters are removed.
func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"no changes", "valid_filename.mp3", "valid_filename.mp3"},
		{
			"replaces invalid chars",
			"in<va>l:id\"/\\|?*name.mp3",
			"in_va_l_id_______name.mp3",
		},
		{
			"path traversal flattened",
			"../../etc/passwd",
			".._.._etc_passwd",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := fsutil.SanitizeFilename(testCase.input)
			if result != testCase.expected {
				t.Errorf(
					"Expected sanitized filename %q, got %q",
					testCase.expected,
					result,
				)
			}
		})
	}
}

// TestEnsureExtension verifies the extension is appended exactly once.
func TestEnsureExtension(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"appends when missing", "speech", "speech.mp3"},
		{"keeps existing", "speech.mp3", "speech.mp3"},
		{"case-insensitive match", "speech.MP3", "speech.MP3"},
		{"replaces nothing on other ext", "speech.wav", "speech.wav.mp3"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := fsutil.EnsureExtension(testCase.input, ".mp3")
			if result != testCase.expected {
				t.Errorf("Expected %q, got %q", testCase.expected, result)
			}
		})
	}
}

// TestFormatDuration verifies duration formatting logic.
func TestFormatDuration(t *testing.T) {
	t.Parallel()

	const (
		halfMinuteInSeconds    = 30.5
		exactMinuteInSeconds   = 60
		minuteAndHalfInSeconds = 90.5
		exactHourInSeconds     = 3600
		hourAndMinuteInSeconds = 3670
	)

	testCases := []struct {
		name     string
		expected string
		seconds  float64
	}{
		{
			name:     "less than a minute",
			seconds:  halfMinuteInSeconds,
			expected: "30.5s",
		},
		{
			name:     "exactly a minute",
			seconds:  exactMinuteInSeconds,
			expected: "1m 0.0s",
		},
		{
			name:     "less than an hour",
			seconds:  minuteAndHalfInSeconds,
			expected: "1m 30.5s",
		},
		{name: "exactly an hour", seconds: exactHourInSeconds, expected: "1h 0m"},
		{
			name:     "more than an hour",
			seconds:  hourAndMinuteInSeconds,
			expected: "1h 1m",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := fsutil.FormatDuration(testCase.seconds)
			if result != testCase.expected {
				t.Errorf("Expected %q, got %q", testCase.expected, result)
			}
		})
	}
}

// TestFormatFileSize verifies file size formatting logic.
func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	const (
		bytesTestValue               int64 = 500
		kibibytesTestValue           int64 = 2048
		oneAndHalfMebibytesTestValue int64 = 1572864
		twoGibibytesTestValue        int64 = 2147483648
	)

	testCases := []struct {
		name     string
		expected string
		bytes    int64
	}{
		{name: "bytes", bytes: bytesTestValue, expected: "500 B"},
		{name: "kilobytes", bytes: kibibytesTestValue, expected: "2.0 KB"},
		{
			name:     "megabytes",
			bytes:    oneAndHalfMebibytesTestValue,
			expected: "1.5 MB",
		},
		{name: "gigabytes", bytes: twoGibibytesTestValue, expected: "2.0 GB"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := fsutil.FormatFileSize(testCase.bytes)
			if result != testCase.expected {
				t.Errorf("Expected %q, got %q", testCase.expected, result)
			}
		})
	}
}
