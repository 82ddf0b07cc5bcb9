// Package spawner launches the generated worker source as a detached
// child process and enforces the BACKGROUND_PROCESS=1 fork-bomb guard
// before ever touching the OS process table.
package spawner
