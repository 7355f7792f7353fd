/*
Package sysmon samples system CPU utilisation while a benchmark runs.

A Monitor takes one sample per Config.Interval and, once Config.Window worth of
samples is collected, logs min, max, mean, p95 and p99 of the sliding window
after every sample. Percentiles use the same nearest-rank function as package
bench.
*/
package sysmon
