package launcher

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var debugPrivilege sync.Once

// EnableDebugPrivilege enables the debug privilege on this process, once.
// Most setups can inject without it, so a failure is only logged.
func EnableDebugPrivilege(platform Platform, log logrus.FieldLogger) {
	debugPrivilege.Do(func() {
		if err := platform.EnableDebugPrivilege(); err != nil {
			log.WithError(err).Warn("could not enable debug privilege, continuing without it")
			return
		}
		log.Debug("debug privilege enabled")
	})
}
