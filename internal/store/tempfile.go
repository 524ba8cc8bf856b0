package store

import "os"

func tempDir() (string, error) {
	return os.MkdirTemp("", "taskflowmcp-store-*")
}

func removeAll(dir string) {
	_ = os.RemoveAll(dir)
}
