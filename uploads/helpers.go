package uploads

import (
	"fmt"
	"path/filepath"
)

func baseName(path string) string {
	return filepath.Base(path)
}

func fmtProcessed(n int) string {
	return fmt.Sprintf("Processed %d files", n)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
