package host

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/jmylchreest/shutter/internal/filename"
)

// SystemEnv reads the user and machine values for filename patterns.
func SystemEnv() filename.Env {
	env := filename.Env{}

	if u, err := user.Current(); err == nil {
		env.User = u.Username
	}
	if env.User == "" {
		env.User = firstNonEmpty(os.Getenv("USER"), os.Getenv("USERNAME"))
	}
	// Windows reports DOMAIN\user.
	if domain, name, ok := strings.Cut(env.User, `\`); ok {
		env.Domain = domain
		env.User = name
	}

	if hostname, err := os.Hostname(); err == nil {
		short, domain, _ := strings.Cut(hostname, ".")
		env.Hostname = short
		if env.Domain == "" {
			env.Domain = domain
		}
	}
	if env.Domain == "" {
		env.Domain = os.Getenv("USERDOMAIN")
	}

	return env
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// OtherInstances returns the PIDs of other running processes with the same
// executable name as this one.
func OtherInstances() ([]int, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return findProcessByName(filepath.Base(exe), os.Getpid())
}

// findProcessByName finds all PIDs of processes with the given name, except self.
func findProcessByName(name string, self int) ([]int, error) {
	processes, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, p := range processes {
		if p.Pid() != self && p.Executable() == name {
			pids = append(pids, p.Pid())
		}
	}
	return pids, nil
}
