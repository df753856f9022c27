// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package retrieval 提供段落级检索与重排。

包含四个相互配合的组件：

  - BM25Retriever：静态语料上的 Okapi BM25 词法检索。
  - VectorStoreRetriever：缓存嵌入上的暴力余弦检索，带 JSON 持久化。
  - HybridRetriever：融合语义 / 因果 / BM25 三路信号，查询结果缓存
    （进程内 LRU，可替换为 Redis 后端）。
  - CausalPathReranker：按因果节点与路径重叠对候选列表做最终重排。

检索始终尽力而为：编码失败、空语料等退化为空结果加告警日志，
不向调用方抛错。
*/
package retrieval
