/*
Package session serialises snapshot work on one session id.

A Locker hands out one in-process lock per session id and forgets it once the
last holder or waiter is gone, so ids can be created without bound. With a
distributed locker attached, the local lock is taken first and the
distributed one second, which keeps a process from queueing several of its
own callers on the backend.
*/
package session
