/*
Package flow allows to build and execute streaming dataflow graphs.

Concept

A flowgraph is a set of blocks connected through their ports. Every block
performs one computation step per work call:

    Source - a block without stream inputs;
    Processor - a block with stream inputs and outputs;
    Sink - a block without stream outputs;

Stream ports are backed by ring buffers. Every output port owns one buffer
and every connected input port owns an independent reader of that buffer.
Buffers also carry stream tags: metadata attached to absolute item
offsets that travel downstream together with the items.

Message ports carry discrete control values instead of items. Every block
has two message inputs: "param_update" changes a block parameter and
"system" accepts lifecycle commands.

Execution

Blocks are partitioned into domains. Every domain is executed by a single
scheduler goroutine, so work calls of one block never overlap. Schedulers
exchange messages through queues: notifications about new items or free
space, timer wakes, parameter changes and queries. A block never sleeps in
its work call; it returns and asks for a wake instead.

Parameters can be changed and queried from any goroutine. When the block is
running, the request is executed by its scheduler between work calls and
the caller waits for the result. Otherwise the request is applied inline.
*/
package flow
