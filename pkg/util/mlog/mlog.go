package mlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Log wraps logrus.Logger and holds information of logging file.
type Log struct {
	*logrus.Logger

	file     *os.File
	location string
	mu       sync.Mutex
}

var (
	root   *Log
	rootMu sync.Mutex
)

// Init sets up the process wide logger with the given location.
// The location "stderr" or an empty string prints out to the standard error.
func Init(location string) error {
	l, err := New(location)
	if err != nil {
		return err
	}

	rootMu.Lock()
	defer rootMu.Unlock()

	if root != nil {
		root.Close()
	}
	root = l
	return nil
}

// New creates Log object.
func New(location string) (*Log, error) {
	l := &Log{}

	l.Logger = logrus.New()
	l.location = location

	if l.location == "" || l.location == "stderr" {
		l.Out = os.Stderr
		l.file = nil
	} else {
		f, err := os.OpenFile(location, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		l.Out = f
		l.file = f
	}

	return l, nil
}

// Close closes the logging file if it has one.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	err := l.file.Close()
	l.file = nil
	return err
}

// GetLogger returns the process wide logger.
// Logs go to the stderr until Init is called.
func GetLogger() *logrus.Logger {
	rootMu.Lock()
	defer rootMu.Unlock()

	if root == nil {
		root, _ = New("stderr")
	}
	return root.Logger
}

// GetPackageLogger returns a logger entry tagged with the package name.
func GetPackageLogger(pkg string) *logrus.Entry {
	return GetLogger().WithField("package", pkg)
}

// GetMethodLogger returns a logger entry for the method of the package.
func GetMethodLogger(pkgLogger *logrus.Entry, method string) *logrus.Entry {
	if pkgLogger == nil {
		pkgLogger = logrus.NewEntry(GetLogger())
	}
	return pkgLogger.WithField("method", method)
}

// GetFunctionLogger returns a logger entry for the function of the package.
func GetFunctionLogger(pkgLogger *logrus.Entry, function string) *logrus.Entry {
	if pkgLogger == nil {
		pkgLogger = logrus.NewEntry(GetLogger())
	}
	return pkgLogger.WithField("function", function)
}
