// File: ipc/transport/shm_paths.go
// Per-connection temp dirs with chown (spec.md §5 supplemented
// feature, grounded on libqb's lib/ipcs.c qb_ipcs_shm_connect): on
// Linux a fresh /dev/shm/qb-<srv_pid>-<cli_pid>-<sock>-XXXXXX
// directory holds the per-connection RB files; elsewhere a plain name
// stem is used directly (spec.md §6.2).
package transport

import (
	"fmt"
	"os"
	"runtime"

	"github.com/loopmesh/qbipc/internal/qblog"
)

// ConnectionStem synthesizes the per-connection name base spec.md
// §4.7 step 4 describes.
func ConnectionStem(srvPID, cliPID, sock int) string {
	return fmt.Sprintf("qb-%d-%d-%d", srvPID, cliPID, sock)
}

// MakeConnectionDir creates a fresh mode-0770 temp directory for a
// connection's RB backing files on Linux, chown'd best-effort to
// uid/gid; on other platforms it returns the bare stem, with no
// directory created, since there is no /dev/shm convention to anchor
// it to (spec.md §6.2 "Fallback for non-filesystem sockets").
func MakeConnectionDir(srvPID, cliPID, sock int, uid, gid int, log qblog.Logger) (string, error) {
	stem := ConnectionStem(srvPID, cliPID, sock)
	if runtime.GOOS != "linux" {
		return stem, nil
	}

	dir, err := os.MkdirTemp("/dev/shm", stem+"-*")
	if err != nil {
		return "", err
	}
	if err := os.Chmod(dir, 0770); err != nil {
		return "", err
	}
	if err := os.Chown(dir, uid, gid); err != nil && log != nil {
		// A non-privileged server legitimately cannot chown to another
		// uid; this is logged, not fatal (spec.md §5).
		log.Emit(qblog.LevelWarn, "shm_paths.go", 0, "MakeConnectionDir",
			"chown connection dir failed, continuing without it")
	}
	return dir + "/qb", nil
}
