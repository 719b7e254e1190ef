//go:build mage

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var (
	Go = "go"

	binary = filepath.Join("bin", "ssi-vc-service")
)

// Build compiles the service binary into bin/.
func Build() error {
	fmt.Println("Building...")
	return sh.Run(Go, "build", "-o", binary, "./cmd/ssiservice")
}

// Clean deletes any build artifacts.
func Clean() {
	fmt.Println("Cleaning...")
	_ = os.RemoveAll("bin")
	_ = os.Remove("coverage.out")
}

// Run builds the service and starts it against the dev config.
func Run() error {
	mg.Deps(Build)
	env := map[string]string{"CONFIG_PATH": filepath.Join("config", "dev.toml")}
	_, err := sh.Exec(env, os.Stdout, os.Stderr, binary)
	return err
}

// Test runs unit tests against bolt and miniredis.
// The mage `-v` option will trigger a verbose output of the test
func Test() error {
	return runTests(nil)
}

// PostgresTest also runs the storage suite against an embedded postgres. The first run downloads binaries.
func PostgresTest() error {
	return runTests(map[string]string{"SSI_TEST_POSTGRES": "1"})
}

// CITest runs unit tests with coverage as a part of CI.
func CITest() error {
	return runTests(nil, "-covermode=atomic", "-coverprofile=coverage.out")
}

// Spec generates an OpenAPI spec yaml based on code annotations.
func Spec() error {
	swagCommand := "swag"
	if err := installIfNotPresent(swagCommand, "github.com/swaggo/swag/cmd/swag@latest"); err != nil {
		return err
	}
	return sh.Run(swagCommand, "init", "-g", "cmd/ssiservice/main.go", "--pd", "-o", "doc", "-ot", "yaml")
}

func runTests(extraEnv map[string]string, extraTestArgs ...string) error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "-race")
	args = append(args, extraTestArgs...)
	args = append(args, "./...")
	testEnv := map[string]string{
		"CGO_ENABLED": "1",
		"GO111MODULE": "on",
	}
	for k, v := range extraEnv {
		testEnv[k] = v
	}
	logrus.Infof("running: %s %s", Go, strings.Join(args, " "))
	_, err := sh.Exec(testEnv, colorizeTestStdout(), os.Stderr, Go, args...)
	return err
}

func colorizeTestStdout() io.Writer {
	if !term.IsTerminal(syscall.Stdout) {
		return os.Stdout
	}
	writer := newRegexpWriter(os.Stdout, `PASS.*`, "\033[32m$0\033[0m")
	return newRegexpWriter(writer, `FAIL.*`, "\033[31m$0\033[0m")
}

type regexpWriter struct {
	inner io.Writer
	re    *regexp.Regexp
	repl  []byte
}

func newRegexpWriter(inner io.Writer, re string, repl string) io.Writer {
	return &regexpWriter{inner, regexp.MustCompile(re), []byte(repl)}
}

func (w *regexpWriter) Write(p []byte) (int, error) {
	r := w.re.ReplaceAll(p, w.repl)
	n, err := w.inner.Write(r)
	if n > len(r) {
		n = len(r)
	}
	return n, err
}

// installIfNotPresent installs a go based tool unless it is already on PATH or in GOPATH/bin.
func installIfNotPresent(execName, goPackage string) error {
	if findOnPathOrGoPath(execName) != "" {
		return nil
	}
	usr, err := user.Current()
	if err != nil {
		return err
	}
	logrus.Infof("installing %s", execName)
	cmd := exec.Command(Go, "install", goPackage)
	cmd.Dir = usr.HomeDir
	return cmd.Run()
}

func findOnPathOrGoPath(execName string) string {
	if p, err := exec.LookPath(execName); err == nil {
		return p
	}
	p := filepath.Join(goPath(), "bin", execName)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

func goPath() string {
	if goPath, ok := os.LookupEnv("GOPATH"); ok {
		return goPath
	}
	usr, err := user.Current()
	if err != nil {
		logrus.Fatal(err)
	}
	return filepath.Join(usr.HomeDir, Go)
}

// CBT runs clean; build; test.
func CBT() error {
	Clean()
	if err := Build(); err != nil {
		return err
	}
	return Test()
}
