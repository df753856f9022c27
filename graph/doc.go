// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package graph 提供因果知识图使用的有向加权图。

基于邻接表实现，支持度查询、环检测 / DAG 判定、弱连通分量、
子图提取和深度受限的路径枚举。环检测与路径搜索均使用显式栈
DFS，避免在长链图上的递归栈溢出风险。

图内部不做任何基于权重的排序，路径排序由调用方负责。
*/
package graph
