// Command trx streams audio over RTP to and from any number of peers.
//
// One capture device is encoded once and sent to every configured
// destination; every destination's incoming stream is decoded and played
// on its own playback device. Connections are given either explicitly:
//
//	trx -h 10.0.0.2 -p 1350 -s 1350 -S 1001
//
// or as an extended list:
//
//	trx -x 1001@5000#10.0.0.2:6000,1002@5002#10.0.0.3:6001
//
// RTCP uses each receive port plus one, so receive ports in a list must
// not be adjacent unless --no-rtcp is given.
//
// SIGINT and SIGTERM stop the process; SIGUSR1 prints a JSON stats report
// on standard output. Exit status is 0 after a clean stop, 1 when the
// configuration or setup fails and 2 when a pipeline fails.
package main
