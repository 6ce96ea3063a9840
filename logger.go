// File: logger.go
package activebody

import (
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// log is the package-wide logger.
var log = commonlog.GetLogger("activebody")
