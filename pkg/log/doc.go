/*
Package log provides structured logging via zerolog: a process-wide
Logger configured once by Init, and WithComponent/WithTaskID helpers for
child loggers that tag every line with a subsystem or task id.

Console output is the default; JSON output is used only when
Config.JSONOutput is set (deferctl's --log-json flag). See pkg/config for how logging.enabled/logging.directory/
logging.level feed Init, and logfile.go for the plain-text
background_tasks.log writer required by the status/log file contract.
*/
package log
