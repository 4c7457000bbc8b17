//go:build !windows

package luaforge

// vsSetupCommand finds nothing off Windows.
func vsSetupCommand(_ *Reporter, _ *Memo, _, _ string) string {
	return ""
}
