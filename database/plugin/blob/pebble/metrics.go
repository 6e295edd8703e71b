// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pebble

import (
	"github.com/prometheus/client_golang/prometheus"
)

const pebbleMetricNamePrefix = "database_blob_"

func (d *BlobStorePebble) registerBlobMetrics() {
	diskUsage := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: pebbleMetricNamePrefix + "disk_usage_bytes",
			Help: "Disk space used by the pebble store",
		},
		func() float64 {
			return float64(d.DB().Metrics().DiskSpaceUsage())
		},
	)
	memtableSize := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: pebbleMetricNamePrefix + "memtable_size_bytes",
			Help: "Size of the pebble memtables",
		},
		func() float64 {
			return float64(d.DB().Metrics().MemTable.Size)
		},
	)

	d.promRegistry.MustRegister(diskUsage, memtableSize)
}
