package luaforge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestDefaultTarget(t *testing.T) {
	none := func(string) bool { return false }
	gccOnly := func(name string) bool { return name == "gcc" }
	both := func(string) bool { return true }

	assert.Equal(t, "linux", defaultTarget("linux", none))
	assert.Equal(t, "macosx", defaultTarget("darwin", none))
	assert.Equal(t, "freebsd", defaultTarget("freebsd", none))
	assert.Equal(t, "posix", defaultTarget("openbsd", none))
	assert.Equal(t, "generic", defaultTarget("plan9", none))
	assert.Equal(t, "mingw", defaultTarget("windows", gccOnly))
	assert.Equal(t, "vs", defaultTarget("windows", both))
	assert.Equal(t, "vs", defaultTarget("windows", none))
}

func TestValidTarget(t *testing.T) {
	assert.True(t, validTarget("vs15_64"))
	assert.True(t, validTarget("generic"))
	assert.False(t, validTarget("vs17_64"))
	assert.False(t, validTarget("Linux"))
}

func TestParseCLBanner(t *testing.T) {
	year, arch, err := parseCLBanner("Microsoft (R) C/C++ Optimizing Compiler Version 19.00.24215.1 for x64")
	require.NoError(t, err)
	assert.Equal(t, "15", year)
	assert.Equal(t, "x64", arch)

	year, arch, err = parseCLBanner("Microsoft (R) 32-bit C/C++ Optimizing Compiler Version 16.00.30319.01 for 80x86")
	require.NoError(t, err)
	assert.Equal(t, "10", year)
	assert.Equal(t, "x86", arch)

	_, _, err = parseCLBanner("cl: command not found")
	assert.ErrorIs(t, err, ErrToolchain)
	assert.Equal(t, "couldn't determine cl.exe version and architecture", describe(err))
}

func TestProbeCL_Memoized(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := NewMockRunner(ctrl)
	runner.EXPECT().Query(gomock.Any(), "", "cl").
		Return("Microsoft (R) C/C++ Optimizing Compiler Version 18.00.40629 for x86", nil).
		Times(1)

	memo := NewMemo()
	for range 2 {
		year, arch, err := probeCL(context.Background(), runner, memo)
		require.NoError(t, err)
		assert.Equal(t, "13", year)
		assert.Equal(t, "x86", arch)
	}
}

func TestParseEnvDump(t *testing.T) {
	out := "noise\r\nPATH=ignored\r\n" + envMarker + "\r\nPATH=C:\\VC\\bin;C:\\Windows\r\nINCLUDE=C:\\VC\\include\r\n\r\n"
	assert.Equal(t, []string{`PATH=C:\VC\bin;C:\Windows`, `INCLUDE=C:\VC\include`}, parseEnvDump(out))
	assert.Nil(t, parseEnvDump("no marker"))
}

func TestSetupMSVC_UsesCLFromPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := NewMockRunner(ctrl)
	runner.EXPECT().LookPath("cl").Return(true)
	report, out := newTestReporter()

	env, err := setupMSVC(context.Background(), Options{Target: "vs", Windows: true}, runner, report, NewMemo(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, env)
	assert.Equal(t, "Using cl.exe found in PATH.\n", out.String())
}

func TestSetupMSVC_RequiresWindows(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := NewMockRunner(ctrl)
	report, _ := newTestReporter()

	_, err := setupMSVC(context.Background(), Options{Target: "vs15_64"}, runner, report, NewMemo(), t.TempDir())
	assert.ErrorIs(t, err, ErrToolchain)
}
