package env

import "os"

func osEnviron() []string {
	return os.Environ()
}
