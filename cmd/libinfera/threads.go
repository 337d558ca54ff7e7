//go:build cgo && linux

package main

/*
#include <stdint.h>
#include <stdlib.h>
#include <pthread.h>

// Each host thread draws a token on its first call. Tokens are never reused,
// unlike pthread_self values, and a key destructor queues the token of every
// exiting thread so its session can be dropped.
static __thread uint64_t infera_token;
static uint64_t infera_next_token;
static pthread_key_t infera_exit_key;
static pthread_once_t infera_key_once = PTHREAD_ONCE_INIT;
static pthread_mutex_t infera_exit_mu = PTHREAD_MUTEX_INITIALIZER;
static uint64_t *infera_exited;
static size_t infera_exited_len, infera_exited_cap;

static void infera_on_thread_exit(void *v) {
	pthread_mutex_lock(&infera_exit_mu);
	if (infera_exited_len == infera_exited_cap) {
		size_t cap = infera_exited_cap ? infera_exited_cap * 2 : 16;
		uint64_t *p = realloc(infera_exited, cap * sizeof(uint64_t));
		if (p == NULL) {
			pthread_mutex_unlock(&infera_exit_mu);
			return;
		}
		infera_exited = p;
		infera_exited_cap = cap;
	}
	infera_exited[infera_exited_len++] = (uint64_t)(uintptr_t)v;
	pthread_mutex_unlock(&infera_exit_mu);
}

static void infera_make_exit_key(void) {
	pthread_key_create(&infera_exit_key, infera_on_thread_exit);
}

static uint64_t infera_thread_token(void) {
	if (infera_token == 0) {
		pthread_once(&infera_key_once, infera_make_exit_key);
		infera_token = __atomic_add_fetch(&infera_next_token, 1, __ATOMIC_RELAXED);
		pthread_setspecific(infera_exit_key, (void *)(uintptr_t)infera_token);
	}
	return infera_token;
}

// infera_take_exited moves up to n queued tokens into out and returns how many.
static size_t infera_take_exited(uint64_t *out, size_t n) {
	pthread_mutex_lock(&infera_exit_mu);
	if (n > infera_exited_len) {
		n = infera_exited_len;
	}
	infera_exited_len -= n;
	for (size_t i = 0; i < n; i++) {
		out[i] = infera_exited[infera_exited_len + i];
	}
	pthread_mutex_unlock(&infera_exit_mu);
	return n;
}
*/
import "C"

import "unsafe"

// threadToken identifies the calling OS thread for as long as it lives.
func threadToken() uint64 {
	return uint64(C.infera_thread_token())
}

// exitedThreads drains the tokens of threads that exited since the last call.
func exitedThreads() []uint64 {
	var out []uint64
	var buf [64]uint64
	for {
		n := int(C.infera_take_exited((*C.uint64_t)(unsafe.Pointer(&buf[0])), C.size_t(len(buf))))
		out = append(out, buf[:n]...)
		if n < len(buf) {
			return out
		}
	}
}
