package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// SplitArgs securely splits a user-provided argument string into a
// slice of arguments. No shell is ever involved.
func SplitArgs(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid argument syntax: %w", err)
	}
	return args, nil
}

// SanitizeArgs checks extra encoder arguments accepted from a request.
// exec never passes these through a shell, but stored command previews
// end up in logs and UIs, so metacharacters are rejected outright, and
// extra inputs or passthrough options are not allowed to sidestep the
// derived command.
func SanitizeArgs(args []string) error {
	for _, arg := range args {
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
		switch arg {
		case "-i":
			return fmt.Errorf("extra arguments may not add inputs")
		case "-passlogfile", "-filter_script", "-fpre":
			return fmt.Errorf("extra arguments may not reference files: %s", arg)
		}
	}
	return nil
}
