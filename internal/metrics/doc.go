// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 metrics 提供管线的 Prometheus 指标采集。

通过 Collector 统一注册和记录指标，使用 promauto 自动注册机制。
所有指标按 namespace 隔离。覆盖的维度：

  - 抽取指标：入图三元组计数（按抽取方式分组）、低置信度丢弃计数。
  - 图指标：节点创建与变体折叠计数。
  - 缓存指标：命中与未命中计数，按缓存名分组。
  - 检索指标：检索耗时 Histogram，按检索器分组。

nil *Collector 上的所有方法均为 no-op，组件无需判空即可上报，
未启用指标的部署不付出任何代价。
*/
package metrics
