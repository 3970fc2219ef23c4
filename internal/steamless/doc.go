// Package steamless runs the optional Steamless DRM-strip pass over a
// downloaded title.
//
// FindExecutables ranks candidate executables by name and size so the main
// game binary is patched rather than a launcher or crash handler. Client
// invokes Steamless.CLI (through mono when the tool is a .NET assembly on a
// non-Windows host) and swaps the unpacked binary into place, keeping the
// original alongside as <exe>.original.exe.
//
// Every failure here is advisory: callers log it and continue the install.
package steamless
