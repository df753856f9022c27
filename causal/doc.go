// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package causal 实现因果知识图的构建与检索。

Builder 将抽取出的三元组提交入图：低置信度三元组在入图前被丢弃，
节点文本经嵌入相似度去重折叠为既有节点的变体，边权取置信度且
后写覆盖。图、节点文本、变体与节点嵌入构成一个聚合，通过
Save/Load 一同持久化（嵌入在加载时重新计算）。

PathRetriever 在图上回答查询：按嵌入相似度匹配节点、围绕种子
节点做跳数受限的双向扩展，以及在相关节点对之间枚举因果路径，
路径按长度升序返回。
*/
package causal
