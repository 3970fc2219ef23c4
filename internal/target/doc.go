// Package target installs content onto a machine running the game client.
//
// Adapter is implemented by Local (this machine) and Remote (a device reached
// over SSH, with rsync for bulk transfer). Everything that differs between the
// two, such as library discovery, config file edits and marker files, lives
// behind the interface so the installer never branches on target kind.
package target
