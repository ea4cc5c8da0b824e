package shortmsg

import "os"

func unixRemove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func socketExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
