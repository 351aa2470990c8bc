// Package factory builds pluggable modules (metrics sinks, decision log
// backends, usage stores) from a type name and a map of raw settings, as
// they appear in the configuration file:
//
//	metrics:
//	  sinks:
//	    - type: influx
//	      conf: {url: "http://influx:8086", bucket: fleet}
package factory
