package cli

import (
	"fmt"
	"io"

	"github.com/autobrr/go-fragindex/internal/fragindex"
)

var appVersion = "dev"

func SetVersion(version string) {
	if version != "" {
		appVersion = version
	}
}

func AppVersion() string {
	return appVersion
}

func Version(stdout io.Writer) {
	fmt.Fprintf(stdout, "%s, %s\n", fragindex.AppName, fragindex.FormatVersion(appVersion))
}
